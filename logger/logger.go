package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Info 正常日志，输出到 stdout
	Info *zap.SugaredLogger

	// Error 错误日志，输出到 stderr
	Error *zap.SugaredLogger
)

func init() {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	stdout := zapcore.Lock(os.Stdout)
	stderr := zapcore.Lock(os.Stderr)

	infoCore := zapcore.NewCore(encoder, stdout, zapcore.InfoLevel)
	errorCore := zapcore.NewCore(encoder, stderr, zapcore.ErrorLevel)

	Info = zap.New(infoCore).Sugar()
	Error = zap.New(errorCore).Sugar()
}

// Println 输出正常日志到 stdout
func Println(v ...interface{}) {
	Info.Infoln(v...)
}

// Printf 格式化输出正常日志到 stdout
func Printf(format string, v ...interface{}) {
	Info.Infof(format, v...)
}

// Errorln 输出错误日志到 stderr
func Errorln(v ...interface{}) {
	Error.Errorln(v...)
}

// Errorf 格式化输出错误日志到 stderr
func Errorf(format string, v ...interface{}) {
	Error.Errorf(format, v...)
}

// Fatalf 输出致命错误并退出程序
func Fatalf(format string, v ...interface{}) {
	Error.Fatalf(format, v...)
}
