package extloader

// Logger is the structured logging interface the loader and its
// subpackages consume. It uses variadic key-value pairs so it is
// compatible with slog, zap's SugaredLogger, logrus, and similar.
//
//	logger.Warn("config path does not exist", "path", path)
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
