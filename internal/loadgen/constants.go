package loadgen

// HTTP status code constants.
const (
	StatusOK                  = 200
	StatusUnprocessableEntity = 422
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	unknownCategory      = "__loadgen_unknown__"
)
