package pulseflow

import (
	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/envelope"
	"github.com/drblury/pulseflow/internal/holding"
	"github.com/drblury/pulseflow/internal/mapping"
	"github.com/drblury/pulseflow/internal/pipeline"
	"github.com/drblury/pulseflow/internal/redrive"
	runtimepkg "github.com/drblury/pulseflow/internal/runtime"
	configpkg "github.com/drblury/pulseflow/internal/runtime/config"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	idspkg "github.com/drblury/pulseflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/internal/sink"
	"github.com/drblury/pulseflow/internal/store"
	"github.com/drblury/pulseflow/transport"
)

type (
	Config         = configpkg.Config
	PipelineConfig = configpkg.PipelineConfig
	RedriveConfig  = configpkg.RedriveConfig

	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	MessageHandlerRegistration = runtimepkg.MessageHandlerRegistration
	MiddlewareBuilder          = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration     = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig      = runtimepkg.RetryMiddlewareConfig
	HandlerInfo                = runtimepkg.HandlerInfo
	HandlerSnapshot            = runtimepkg.HandlerSnapshot
	ErrorClassifier            = runtimepkg.ErrorClassifier

	// Pipeline
	Envelope             = envelope.Envelope
	EventMeta            = envelope.Meta
	Pipeline             = pipeline.Pipeline
	PipelineDependencies = pipeline.Dependencies
	Input                = pipeline.Input
	Outcome              = pipeline.Outcome
	ReplaySummary        = pipeline.ReplaySummary
	Mapper               = mapping.Mapper
	MapperSet            = mapping.Set
	Row                  = mapping.Row
	SinkWriter           = sink.Writer
	Store                = store.Store

	// Dead letters
	DeadLetterRecord = deadletter.Record
	DeadLetterStage  = deadletter.Stage
	DeadLetterSink   = deadletter.Sink

	// Redrive
	HoldingQueue    = redrive.HoldingQueue
	Delivery        = redrive.Delivery
	RedriveOptions  = redrive.Options
	RedriveSummary  = redrive.Summary
	RedriveWorker   = redrive.Worker
	SQLHoldingQueue = holding.SQLQueue
	SQSHoldingQueue = holding.SQSQueue

	StageMetrics   = metrics.Stages
	RedriveMetrics = metrics.Redrive

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	DecodeError           = errspkg.DecodeError
	ValidationError       = errspkg.ValidationError
	ShapeError            = errspkg.ShapeError
	SinkWriteError        = errspkg.SinkWriteError

	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
	TransportDLQManager   = transport.DLQManager
	TransportDLQLeaser    = transport.DLQLeaser
	DLQMessage            = transport.DLQMessage
)

var (
	NewService             = runtimepkg.NewService
	RegisterMessageHandler = runtimepkg.RegisterMessageHandler
	LoadConfig             = configpkg.Load

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware
	DefaultErrorClassifier  = runtimepkg.DefaultErrorClassifier

	DecodeAndNormalize     = envelope.DecodeAndNormalize
	NewPipeline            = pipeline.New
	DefaultMappers         = mapping.DefaultSet
	RawEventMapper         = mapping.RawEventMapper
	NewSinkWriter          = sink.NewWriter
	OpenStore              = store.Open
	NewStoreDeadLetterSink = deadletter.NewStoreSink
	NewLogDeadLetterSink   = deadletter.NewLogSink

	NewRedriveWorker   = redrive.NewWorker
	RedriveFromConfig  = redrive.FromConfig
	NewSQLHoldingQueue = holding.NewSQLQueue
	NewSQSHoldingQueue = holding.NewSQSQueue

	NewStageMetrics   = metrics.NewStages
	NewRedriveMetrics = metrics.NewRedrive

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrDecode               = errspkg.ErrDecode
	ErrValidation           = errspkg.ErrValidation
	ErrShape                = errspkg.ErrShape
	ErrSinkWrite            = errspkg.ErrSinkWrite

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewJSONLogger        = loggingpkg.NewJSONLogger

	NewMetadata = metadatapkg.New
	CreateULID  = idspkg.CreateULID
)

// Dead-letter stages.
const (
	StageParseNormalize = deadletter.StageParseNormalize
	StageDomainMapping  = deadletter.StageDomainMapping
	StageSinkInsert     = deadletter.StageSinkInsert
)

// Redrive exit codes.
const (
	ExitOK       = redrive.ExitOK
	ExitFatal    = redrive.ExitFatal
	ExitDegraded = redrive.ExitDegraded
)
