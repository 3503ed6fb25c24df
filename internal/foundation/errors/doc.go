// Package errors provides the classified error type used across sitebuilder.
//
// Every failure that reaches the CLI carries a category (config, plugin, image, ...)
// and a severity. The category decides the process exit code; the context map
// carries the offending page, plugin or path for log output.
//
// Example usage:
//
//	err := errors.WrapError(decodeErr, errors.CategoryImage, "decode image").
//		WithContext("page", p.Src.Path).
//		Build()
package errors
