package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldTraceID   = "trace_id"
	FieldEndpoint  = "endpoint"
	FieldStatus    = "status_code"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldEmail     = "email"
	FieldExpenseID = "expense_id"
	FieldCount     = "count"
	FieldState     = "state"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentTransport = "transport"
	ComponentSession   = "session"
	ComponentAuth      = "auth"
	ComponentExpense   = "expense"
	ComponentStats     = "stats"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpPreValidate = "prevalidate"
	OpLogin       = "login"
	OpLogout      = "logout"
	OpRegister    = "register"
	OpFetch       = "fetch"
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpRestore     = "restore"
	OpRefresh     = "refresh"
)
