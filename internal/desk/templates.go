package desk

import "html/template"

var funcs = template.FuncMap{
	"verdict": func(fraud bool) string {
		if fraud {
			return "FRAUD"
		}
		return "SAFE"
	},
}

var viewTemplate = template.Must(template.New("view").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Fraud Detector - Transactions</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        table { border-collapse: collapse; width: 100%; background: white; }
        th, td { padding: 6px 10px; border-bottom: 1px solid #ddd; text-align: left; font-size: 13px; }
        .fraud { color: #c0392b; font-weight: bold; }
        .safe { color: #27ae60; }
        .summary span { margin-right: 20px; }
    </style>
</head>
<body>
    <h1>Transactions</h1>
    <p class="summary">
        <span>Total: {{.Summary.Total}}</span>
        <span class="fraud">Fraud: {{.Summary.Fraud}}</span>
        <span class="safe">Safe: {{.Summary.Safe}}</span>
        <a href="add">Add transaction</a>
    </p>
    <table>
        <tr><th>ID</th><th>Time</th><th>Verdict</th><th>Features</th></tr>
        {{range .Transactions}}
        <tr>
            <td>{{.ID}}</td>
            <td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td>
            <td class="{{if .Fraud}}fraud{{else}}safe{{end}}">{{verdict .Fraud}}</td>
            <td>{{.Features}}</td>
        </tr>
        {{else}}
        <tr><td colspan="4">No transactions yet.</td></tr>
        {{end}}
    </table>
</body>
</html>
`))

var addTemplate = template.Must(template.New("add").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Fraud Detector - Add Transaction</title>
    <meta charset="UTF-8">
</head>
<body>
    <h1>Add Transaction</h1>
    <form method="POST" action="{{.Action}}">
        <label for="features">Features (comma separated)</label><br>
        <textarea id="features" name="features" rows="4" cols="80"></textarea><br>
        <button type="submit">Check</button>
    </form>
    <p><a href="view">All transactions</a></p>
</body>
</html>
`))
