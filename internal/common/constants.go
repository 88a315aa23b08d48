package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvModelPath      = "MODEL_PATH"
	EnvFeatureCount   = "FEATURE_COUNT"
	EnvListenHost     = "LISTEN_HOST"
	EnvPort           = "PORT"
	EnvPredictTimeout = "PREDICT_TIMEOUT"
	EnvPythonPath     = "PYTHON_PATH"
	EnvInferScript    = "INFERENCE_SCRIPT"
	EnvMaxBodyBytes   = "MAX_BODY_BYTES"
	EnvDeskPort       = "DESK_PORT"
	EnvScoringURL     = "SCORING_URL"
	EnvRESTTimeout    = "REST_TIMEOUT"
	EnvDataPath       = "DATA_PATH"
	EnvDeskRateLimit  = "DESK_RATE_LIMIT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Configuration defaults
const (
	DefaultModelPath      = "fraud_model.pkl"
	DefaultListenHost     = "127.0.0.1"
	DefaultPort           = 5000
	DefaultDeskPort       = 8081
	DefaultScoringURL     = "http://localhost:5000"
	DefaultDataPath       = "data"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultMaxBodyBytes   = 1 << 20
	DefaultPredictSeconds = 10
	DefaultRESTSeconds    = 5
)

// DefaultFeatureCount is the width of the credit card dataset once the Time
// and Class columns are dropped (V1..V28 plus Amount).
const DefaultFeatureCount = 29

// Response messages shared by the inference endpoint and its clients
const (
	ErrMsgInternal         = "Internal server error"
	ErrMsgMethodNotAllowed = "Method not allowed"
	ErrMsgExpectedFormat   = "Expected %d features"
)

// Validation constants
const (
	MinPort          = 1
	MaxPort          = 65535
	MaxFeatureCount  = 4096
	MinMaxBodyBytes  = 1 << 10
	MaxMaxBodyBytes  = 64 << 20
	MaxDeskRateLimit = 10000
	HeaderRequestID  = "X-Request-ID"
	MetadataSuffix   = ".meta.json"
	TransactionsPath = "/api/transactions"
)
