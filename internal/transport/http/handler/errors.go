package handler

const (
	errInternalServer  = "internal server error"
	errTaskNotFound    = "task not found"
	errInvalidCategory = "invalid category: must match ML[A-Z][0-9]{3,4} (e.g. MLU107)"
)
