package core

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel represents different levels of tracing
type TraceLevel int

const (
	TraceLevelOff TraceLevel = iota
	TraceLevelError
	TraceLevelWarn
	TraceLevelInfo
	TraceLevelDebug
	TraceLevelVerbose
)

// String returns the string representation of TraceLevel
func (tl TraceLevel) String() string {
	switch tl {
	case TraceLevelOff:
		return "OFF"
	case TraceLevelError:
		return "ERROR"
	case TraceLevelWarn:
		return "WARN"
	case TraceLevelInfo:
		return "INFO"
	case TraceLevelDebug:
		return "DEBUG"
	case TraceLevelVerbose:
		return "VERBOSE"
	default:
		return "UNKNOWN"
	}
}

// ParseTraceLevel accepts the names printed by String, case-insensitively
func ParseTraceLevel(name string) (TraceLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "OFF":
		return TraceLevelOff, true
	case "ERROR":
		return TraceLevelError, true
	case "WARN":
		return TraceLevelWarn, true
	case "INFO":
		return TraceLevelInfo, true
	case "DEBUG":
		return TraceLevelDebug, true
	case "VERBOSE":
		return TraceLevelVerbose, true
	}
	return TraceLevelOff, false
}

// TraceComponent represents different components that can be traced
type TraceComponent string

const (
	TraceComponentPMML      TraceComponent = "PMML"
	TraceComponentTransform TraceComponent = "TRANSFORM"
	TraceComponentFunction  TraceComponent = "FUNCTION"
	TraceComponentPredicate TraceComponent = "PREDICATE"
	TraceComponentModel     TraceComponent = "MODEL"
	TraceComponentState     TraceComponent = "STATE"
	TraceComponentInput     TraceComponent = "INPUT"
	TraceComponentCast      TraceComponent = "CAST"
	TraceComponentOutput    TraceComponent = "OUTPUT"
)

var allTraceComponents = []TraceComponent{
	TraceComponentPMML, TraceComponentTransform, TraceComponentFunction,
	TraceComponentPredicate, TraceComponentModel, TraceComponentState,
	TraceComponentInput, TraceComponentCast, TraceComponentOutput,
}

// TraceEntry represents a single trace entry
type TraceEntry struct {
	Timestamp time.Time
	Level     TraceLevel
	Component TraceComponent
	Message   string
	Context   map[string]interface{}
}

// Tracer is a component-scoped leveled logger. Entries that pass the level
// and component filters are written to a zap logger and kept in a bounded
// in-memory history.
type Tracer struct {
	level             TraceLevel
	enabledComponents map[TraceComponent]bool
	logger            *zap.Logger
	mutex             sync.RWMutex
	entries           []TraceEntry
	maxEntries        int
}

var globalTracer *Tracer
var tracerOnce sync.Once

// GetTracer returns the global tracer instance
func GetTracer() *Tracer {
	tracerOnce.Do(func() {
		globalTracer = NewTracer(NewConsoleLogger(os.Stderr))
		globalTracer.configureFromEnv()
	})
	return globalTracer
}

// NewTracer creates a tracer writing to logger. It starts with tracing off.
func NewTracer(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		level:             TraceLevelOff,
		enabledComponents: make(map[TraceComponent]bool),
		logger:            logger,
		maxEntries:        1000,
	}
}

// NewConsoleLogger builds the console zap logger used by the CLI
func NewConsoleLogger(w io.Writer) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("15:04:05.000"))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	))
}

// configureFromEnv reads AUGUSTUS_TRACE_LEVEL and AUGUSTUS_TRACE_COMPONENTS
func (t *Tracer) configureFromEnv() {
	t.Configure(os.Getenv("AUGUSTUS_TRACE_LEVEL"), os.Getenv("AUGUSTUS_TRACE_COMPONENTS"))
}

// Configure applies a level name and a comma-separated component list
// ("ALL" enables every component). Empty arguments leave settings alone.
func (t *Tracer) Configure(level string, components string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if level != "" {
		if parsed, ok := ParseTraceLevel(level); ok {
			t.level = parsed
		}
	}
	if components == "" {
		return
	}
	if strings.ToUpper(strings.TrimSpace(components)) == "ALL" {
		for _, comp := range allTraceComponents {
			t.enabledComponents[comp] = true
		}
		return
	}
	for _, comp := range strings.Split(components, ",") {
		t.enabledComponents[TraceComponent(strings.TrimSpace(strings.ToUpper(comp)))] = true
	}
}

// SetLogger replaces the zap sink
func (t *Tracer) SetLogger(logger *zap.Logger) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.logger = logger
}

// SetLevel sets the trace level
func (t *Tracer) SetLevel(level TraceLevel) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.level = level
}

// EnableComponent enables tracing for a specific component
func (t *Tracer) EnableComponent(component TraceComponent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.enabledComponents[component] = true
}

// DisableComponent disables tracing for a specific component
func (t *Tracer) DisableComponent(component TraceComponent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.enabledComponents[component] = false
}

// IsEnabled checks if tracing is enabled for a given level and component
func (t *Tracer) IsEnabled(level TraceLevel, component TraceComponent) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.level >= level && t.enabledComponents[component]
}

func (t *Tracer) trace(level TraceLevel, component TraceComponent, message string, context map[string]interface{}) {
	if !t.IsEnabled(level, component) {
		return
	}

	entry := TraceEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
		Context:   context,
	}

	t.mutex.Lock()
	t.entries = append(t.entries, entry)
	if len(t.entries) > t.maxEntries {
		t.entries = t.entries[len(t.entries)-t.maxEntries:]
	}
	logger := t.logger
	t.mutex.Unlock()

	t.write(logger, entry)
}

func (t *Tracer) write(logger *zap.Logger, entry TraceEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+1)
	fields = append(fields, zap.String("component", string(entry.Component)))
	keys := make([]string, 0, len(entry.Context))
	for k := range entry.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, entry.Context[k]))
	}

	switch entry.Level {
	case TraceLevelError:
		logger.Error(entry.Message, fields...)
	case TraceLevelWarn:
		logger.Warn(entry.Message, fields...)
	case TraceLevelInfo:
		logger.Info(entry.Message, fields...)
	default:
		logger.Debug(entry.Message, fields...)
	}
}

func firstContext(context []map[string]interface{}) map[string]interface{} {
	if len(context) > 0 {
		return context[0]
	}
	return nil
}

// Error logs an error-level trace
func (t *Tracer) Error(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelError, component, message, firstContext(context))
}

// Warn logs a warning-level trace
func (t *Tracer) Warn(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelWarn, component, message, firstContext(context))
}

// Info logs an info-level trace
func (t *Tracer) Info(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelInfo, component, message, firstContext(context))
}

// Debug logs a debug-level trace
func (t *Tracer) Debug(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelDebug, component, message, firstContext(context))
}

// Verbose logs a verbose-level trace
func (t *Tracer) Verbose(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelVerbose, component, message, firstContext(context))
}

// GetEntries returns a copy of the retained trace entries
func (t *Tracer) GetEntries() []TraceEntry {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	entries := make([]TraceEntry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// Clear clears all trace entries
func (t *Tracer) Clear() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.entries = nil
}

// GetStatus returns the current tracer status
func (t *Tracer) GetStatus() map[string]interface{} {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	components := make(map[TraceComponent]bool, len(t.enabledComponents))
	for k, v := range t.enabledComponents {
		components[k] = v
	}
	return map[string]interface{}{
		"level":      t.level.String(),
		"components": components,
		"entries":    len(t.entries),
		"maxEntries": t.maxEntries,
	}
}

// TraceContext creates a context map for tracing
func TraceContext(pairs ...interface{}) map[string]interface{} {
	context := make(map[string]interface{})
	for i := 0; i < len(pairs)-1; i += 2 {
		if key, ok := pairs[i].(string); ok {
			context[key] = pairs[i+1]
		}
	}
	return context
}
