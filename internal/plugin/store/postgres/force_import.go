package postgres

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0
