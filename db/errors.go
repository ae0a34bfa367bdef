package db

import "fmt"

// Common errors
var (
	ErrRepositoryNotFound = fmt.Errorf("repository not found")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrDatabaseConnection = fmt.Errorf("database connection error")
	ErrTransactionFailed  = fmt.Errorf("transaction failed")
	ErrUpsertFailed       = fmt.Errorf("repository upsert failed")
)
