package core

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the authoritative writer for verification attempts and
// passes, and the composition point for delivery, snapshot publication,
// and the device-local expecting window.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	verificationStore VerificationStore
	passStore         PassStore
	messageSender     MessageSender
	phoneValidator    PhoneValidator
	snapshotPublisher *SnapshotPublisher
	expectingWindow   *ExpectingWindow
	tokenGenerator    TokenGenerator
	now               func() time.Time
	sweepGuard        sync.Mutex
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("callpass", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("callpass"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.tokenGenerator == nil {
		builder.tokenGenerator = RandomTokenGenerator{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.verificationStore == nil {
		builder.verificationStore = NewMemoryVerificationStore()
	}
	if builder.passStore == nil {
		builder.passStore = NewMemoryPassStore()
	}
	if builder.expectingWindow == nil {
		builder.expectingWindow = NewExpectingWindow(nil)
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		verificationStore: builder.verificationStore,
		passStore:         builder.passStore,
		messageSender:     builder.messageSender,
		phoneValidator:    builder.phoneValidator,
		expectingWindow:   builder.expectingWindow,
		tokenGenerator:    builder.tokenGenerator,
		now:               builder.now,
	}
	service.snapshotPublisher = NewSnapshotPublisher(builder.passStore, builder.snapshotSink)
	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) ExpectingWindow() *ExpectingWindow {
	if s == nil {
		return nil
	}
	return s.expectingWindow
}

func (s *Service) SnapshotPublisher() *SnapshotPublisher {
	if s == nil {
		return nil
	}
	return s.snapshotPublisher
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}
