// Package logging builds keel's structured loggers.
//
// Loggers are plain *slog.Logger values. New wraps the text or JSON
// handler in a context handler that stamps the project and task
// identifiers carried on the context, and in a redactor that masks
// secrets that show up in tool arguments and provider errors.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithProjectID(ctx, "pm_1a2b3c")
//	logger.InfoContext(ctx, "gate evaluated", "warnings", 2)
//
// Secret redaction replaces:
//
//   - values under sensitive keys (token, secret, password, api_key)
//   - sk- style API keys and Bearer tokens inside any string value
//   - password=... pairs inside any string value
package logging
