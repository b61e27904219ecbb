package logger

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
)

func init() {
	// 输出目标由 cmd 层决定，这里只给一个无颜色的默认格式
	log.SetFormatter(Formatter(false))
}

// SetOutput 设置日志输出目标
func SetOutput(out io.Writer) {
	log.SetOutput(out)
}

// SetLevel 按名称设置日志级别，无法解析时保持 info
func SetLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// getCaller 跳过 logger 包装层，返回实际调用位置
// 调用链: 用户代码 -> logger.Info -> addCallerField -> getCaller
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func addCallerField() *log.Entry {
	return log.WithField("caller", getCaller(3))
}

func Info(args ...interface{}) {
	addCallerField().Info(args...)
}

func Error(args ...interface{}) {
	addCallerField().Error(args...)
}

func Debug(args ...interface{}) {
	addCallerField().Debug(args...)
}

func Warn(args ...interface{}) {
	addCallerField().Warn(args...)
}

func Fatal(args ...interface{}) {
	addCallerField().Fatal(args...)
}

func Infof(format string, args ...interface{}) {
	addCallerField().Infof(format, args...)
}

func Errorf(format string, args ...interface{}) {
	addCallerField().Errorf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	addCallerField().Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	addCallerField().Warnf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	addCallerField().Fatalf(format, args...)
}

// Log 以 key, value 交替的方式附带字段，例如 Log("job_id", id).Info("...")
func Log(args ...interface{}) *log.Entry {
	fields := log.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
			continue
		}
		fields[key] = ""
	}
	fields["caller"] = getCaller(2)
	return log.WithFields(fields)
}

func Formatter(isConsole bool) *nested.Formatter {
	return &nested.Formatter{
		FieldsOrder:      []string{"time", "level", "caller", "job_id", "msg"},
		HideKeys:         true,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		CallerFirst:      true,
		NoUppercaseLevel: true,
		ShowFullLevel:    true,
		NoColors:         !isConsole,
		// caller 字段由 addCallerField 填充，关闭 logrus 自带的调用者输出
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return ""
		},
	}
}
