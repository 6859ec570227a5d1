package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/api"
	"github.com/BTreeMap/ShopAssist/internal/cache"
	"github.com/BTreeMap/ShopAssist/internal/dispatch"
	"github.com/BTreeMap/ShopAssist/internal/genai"
	"github.com/BTreeMap/ShopAssist/internal/lock"
	"github.com/BTreeMap/ShopAssist/internal/lockfile"
	"github.com/BTreeMap/ShopAssist/internal/mail"
	"github.com/BTreeMap/ShopAssist/internal/messaging"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
	"github.com/BTreeMap/ShopAssist/internal/shopify"
	"github.com/BTreeMap/ShopAssist/internal/store"
	"github.com/BTreeMap/ShopAssist/internal/telephony"
	"github.com/BTreeMap/ShopAssist/internal/twiliowhatsapp"
	"github.com/BTreeMap/ShopAssist/internal/whatsapp"
)

const (
	outboxPollInterval = 5 * time.Second
	twilioWebhookPath  = "/webhooks/twilio/whatsapp"
)

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	stateLock, err := lockfile.Acquire(config.StateDir)
	if err != nil {
		return err
	}
	defer stateLock.Release()

	dsn := config.DatabaseDSN
	if dsn == MemoryDSN {
		dsn = ""
	}
	st, err := store.New(dsn)
	if err != nil {
		return fmt.Errorf("failed to open ticket store: %w", err)
	}
	defer st.Close()

	responses, locker, closeRedis, err := buildSharedState(ctx, config)
	if err != nil {
		return err
	}
	defer closeRedis()

	gen, err := genai.NewClient(buildGenAIOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}
	shop, err := shopify.NewClient(
		shopify.WithShop(config.ShopifyShop),
		shopify.WithAccessToken(config.ShopifyToken),
		shopify.WithAPIVersion(config.ShopifyAPIVersion),
	)
	if err != nil {
		return fmt.Errorf("failed to create Shopify client: %w", err)
	}
	mailer, err := buildMailer(config)
	if err != nil {
		return err
	}

	routerOpts := []dispatch.Option{
		dispatch.WithCache(responses),
		dispatch.WithMailer(mailer),
		dispatch.WithLocker(locker),
		dispatch.WithDedup(st),
		dispatch.WithOutbox(st),
		dispatch.WithSupportInbox(config.SupportInbox),
		dispatch.WithCarrierPhone(config.CarrierPhone),
	}
	caller, err := buildCaller(config)
	if err != nil {
		return err
	}
	if caller != nil {
		routerOpts = append(routerOpts, dispatch.WithCaller(caller))
	}
	router := dispatch.NewRouter(shop, shop, shop, gen, routerOpts...)
	chat := pipeline.New(gen, router, pipeline.WithTicketIdentity(shop, st))

	outbox := store.NewOutboxSender(st, outboxPollInterval)
	outbox.Handle(store.OutboxKindSupportEmail, mail.OutboxHandler(mailer))

	apiOpts := buildAPIOptions(config)

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if config.WhatsAppEnabled {
		svc, webhook, stopChannel, err := buildChannel(ctx, config)
		if err != nil {
			return err
		}
		defer stopChannel()

		bridge := messaging.NewChatBridge(svc, chat, st,
			messaging.WithInboundDedup(st),
			messaging.WithReplyOutbox(st),
		)
		outbox.Handle(store.OutboxKindChatReply, messaging.OutboxHandler(svc))
		apiOpts = append(apiOpts, api.WithAdminRelay(bridge))
		if webhook != nil {
			apiOpts = append(apiOpts, api.WithWebhook(twilioWebhookPath, webhook))
		}
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start WhatsApp service: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridge.Run(ctx)
		}()
	}

	if err := outbox.RecoverStaleMessages(ctx); err != nil {
		slog.Warn("run: outbox recovery failed", "error", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		outbox.Run(ctx)
	}()

	return api.NewServer(chat, st, apiOpts...).Run(ctx)
}

// buildSharedState returns the response cache and order lock, shared
// through Redis when REDIS_URL is set and process-local otherwise.
func buildSharedState(ctx context.Context, config Config) (cache.Cache, lock.Locker, func(), error) {
	if config.RedisURL == "" {
		slog.Debug("No Redis configured, using in-process cache and locks")
		return cache.NewMemory(), lock.NewMemory(), func() {}, nil
	}
	client, err := cache.Connect(ctx, config.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("Using Redis for the response cache and order locks")
	return cache.NewRedis(client, ""), lock.NewRedis(client, ""), func() { client.Close() }, nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config) []genai.Option {
	var opts []genai.Option
	if config.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(config.OpenAIKey))
	}
	if config.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(config.OpenAIModel))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config) []api.Option {
	opts := []api.Option{
		api.WithAddr(config.APIAddr),
		api.WithRateLimit(config.RateLimitRPS, config.RateLimitBurst),
	}
	if len(config.AllowedOrigins) > 0 {
		opts = append(opts, api.WithAllowedOrigins(config.AllowedOrigins))
	}
	return opts
}

// buildMailer returns the SMTP mailer, or a disabled one when no host is set.
func buildMailer(config Config) (mail.Mailer, error) {
	if config.SMTPHost == "" {
		slog.Warn("No SMTP_HOST set, outgoing email is disabled")
		return mail.Disabled{}, nil
	}
	opts := []mail.SMTPOption{
		mail.WithSMTPServer(config.SMTPHost, config.SMTPPort),
		mail.WithFrom(config.MailFrom),
	}
	if config.SMTPUsername != "" {
		opts = append(opts, mail.WithSMTPAuth(config.SMTPUsername, config.SMTPPassword))
	}
	m, err := mail.NewSMTPMailer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP mailer: %w", err)
	}
	return m, nil
}

// buildCaller picks the telephony backend for carrier address changes: the
// HTTP voice bridge when OUTBOUND_CALL_URL is set, Twilio Voice when a voice
// caller ID is configured, nothing otherwise.
func buildCaller(config Config) (dispatch.AddressCaller, error) {
	var svc telephony.Service
	switch {
	case config.OutboundCallURL != "":
		svc = telephony.NewHTTPBridge(config.OutboundCallURL, nil)
	case config.TwilioVoiceFrom != "":
		tc, err := telephony.NewTwilioCaller(
			telephony.WithTwilioCredentials(config.TwilioAccountSID, config.TwilioAuthToken),
			telephony.WithTwilioFrom(config.TwilioVoiceFrom),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio voice caller: %w", err)
		}
		svc = tc
	default:
		slog.Warn("No telephony configured, shipped orders cannot have their address changed")
		return nil, nil
	}
	return telephony.NewOrchestrator(svc), nil
}

// buildChannel connects the configured WhatsApp provider. The returned
// handler is the provider webhook, nil for whatsmeow.
func buildChannel(ctx context.Context, config Config) (messaging.Service, http.Handler, func(), error) {
	if config.WhatsAppProvider == ProviderTwilio {
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(config.TwilioFrom),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Twilio WhatsApp client: %w", err)
		}
		svc := messaging.NewTwilioService(client, config.TwilioWebhookURL)
		return svc, http.HandlerFunc(svc.WebhookHandler), func() { svc.Stop() }, nil
	}

	var waOpts []whatsapp.Option
	if config.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
	}
	if config.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(config.QROutput))
	}
	if config.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(ctx, waOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
	}
	svc := messaging.NewWhatsAppService(client)
	return svc, nil, func() {
		svc.Stop()
		client.Disconnect()
	}, nil
}
