// Package logger fornece o logging auxiliar/diagnóstico usado pelo
// servidor e pelo cliente: inicialização, erros de socket, remetentes
// não-IPv4, eventos e timeout de descoberta, erros fatais de CLI.
// Descartes de datagramas só são contados nas métricas, e o
// esgotamento de retries do cliente é uma linha comum da sua saída,
// não deste pacote. As linhas de evento do
// protocolo bancário têm uma gramática exata e fixa, e são emitidas
// diretamente por internal/server, não por este pacote.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger envolve um *logrus.Entry com um prefixo de componente fixo
// ("server" ou "client"), mantendo a forma do logger que o repositório
// original expunha (Debug/Info/Warn/Error/Fatal, WithField), mas
// delegando nível, formatação e saída ao logrus.
type Logger struct {
	entry *logrus.Entry
}

// colorFormatter aplica as cores do fatih/color aos níveis de log no
// lugar dos códigos ANSI escritos à mão que o logger original usava.
type colorFormatter struct{}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel:
		return color.New(color.FgWhite)
	case logrus.InfoLevel:
		return color.New(color.FgBlue)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.Reset)
	}
}

func (f *colorFormatter) Format(e *logrus.Entry) ([]byte, error) {
	levelText := levelColor(e.Level).Sprint(e.Level.String())
	line := e.Time.Format("2006-01-02 15:04:05.000") + " [" + levelText + "] " + e.Message

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, e.Data[k])
	}

	line += "\n"
	return []byte(line), nil
}

// New cria um logger com o prefixo de componente fornecido, escrevendo
// em output (tipicamente os.Stderr, para não se misturar com as linhas
// de evento do protocolo em os.Stdout).
func New(component string, output io.Writer, level logrus.Level) *Logger {
	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(level)
	base.SetFormatter(&colorFormatter{})
	return &Logger{entry: base.WithField("component", component)}
}

// Default cria o logger padrão (INFO, stderr, cores habilitadas).
func Default(component string) *Logger {
	return New(component, os.Stderr, logrus.InfoLevel)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatalf registra em nível FATAL e termina o processo com status 1 —
// usado pelos binários cmd/* nas falhas de inicialização de que não há
// como se recuperar (bind de socket, descoberta, parse de argumentos).
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

// WithField retorna um logger derivado com um campo estruturado extra,
// preservando o componente original.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}
