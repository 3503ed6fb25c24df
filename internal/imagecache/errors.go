package imagecache

import (
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.NewError(errors.CategoryCache, "could not open image cache database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.NewError(errors.CategoryCache, "failed to initialize image cache schema").Build()
)
