package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/notify"
)

func TestApplyPlatformDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		env      map[string]string
		wantAddr string
		wantDB   string
	}{
		{
			name:     "PortAndDatabaseURL",
			cfg:      Config{Addr: defaultAddr},
			env:      map[string]string{"PORT": "9000", "DATABASE_URL": "postgres://platform"},
			wantAddr: "0.0.0.0:9000",
			wantDB:   "postgres://platform",
		},
		{
			name:     "ExplicitValuesWin",
			cfg:      Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit"},
			env:      map[string]string{"PORT": "9000", "DATABASE_URL": "postgres://platform"},
			wantAddr: "127.0.0.1:7000",
			wantDB:   "postgres://explicit",
		},
		{
			name:     "NothingSet",
			cfg:      Config{Addr: defaultAddr},
			env:      map[string]string{"PORT": "", "DATABASE_URL": ""},
			wantAddr: defaultAddr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := tt.cfg
			cfg.applyPlatformDefaults()
			assert.Equal(t, tt.wantAddr, cfg.Addr)
			assert.Equal(t, tt.wantDB, cfg.DatabaseURL)
		})
	}
}

func TestValidateServer(t *testing.T) {
	valid := Config{
		DatabaseURL:  "postgres://db",
		APIKeyPepper: "pepper",
		Checkout:     CheckoutConfig{MaxAttempts: 3},
	}
	require.NoError(t, valid.validateServer())

	noDB := valid
	noDB.DatabaseURL = ""
	assert.ErrorContains(t, noDB.validateServer(), "database URL")

	noPepper := valid
	noPepper.APIKeyPepper = ""
	assert.ErrorContains(t, noPepper.validateServer(), "pepper")

	noAttempts := valid
	noAttempts.Checkout.MaxAttempts = 0
	assert.Error(t, noAttempts.validateServer())
}

func TestValidateRelay(t *testing.T) {
	cfg := Config{
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
		Mail:  MailConfig{BrevoAPIKey: "key", FromEmail: "shop@example.com"},
	}
	require.NoError(t, cfg.validateRelay())

	noMail := cfg
	noMail.Mail.FromEmail = ""
	assert.Error(t, noMail.validateRelay())

	noKafka := cfg
	noKafka.Kafka.Brokers = nil
	assert.Error(t, noKafka.validateRelay())
}

func TestMailerConfig(t *testing.T) {
	mc := MailConfig{
		BrevoAPIKey:       "key",
		FromEmail:         "shop@example.com",
		BankName:          "Kiwibank",
		BankAccountName:   "Storefront Ltd",
		BankAccountNumber: "38-9000-0000000-00",
	}.MailerConfig()

	assert.Equal(t, "key", mc.APIKey)
	assert.Equal(t, "Kiwibank", mc.Bank.BankName)
	assert.Equal(t, "38-9000-0000000-00", mc.Bank.AccountNumber)
}

func TestNewSender(t *testing.T) {
	mail := MailConfig{BrevoAPIKey: "key", FromEmail: "shop@example.com"}
	kafka := KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "orders.placed"}

	tests := []struct {
		name  string
		cfg   Config
		check func(t *testing.T, s notify.Sender)
	}{
		{
			name:  "Disabled",
			check: func(t *testing.T, s notify.Sender) { assert.Nil(t, s) },
		},
		{
			name: "MailOnly",
			cfg:  Config{Mail: mail},
			check: func(t *testing.T, s notify.Sender) {
				assert.IsType(t, &notify.Mailer{}, s)
			},
		},
		{
			name: "KafkaAndMail",
			cfg:  Config{Mail: mail, Kafka: kafka},
			check: func(t *testing.T, s notify.Sender) {
				require.IsType(t, notify.Multi{}, s)
				assert.Len(t, s.(notify.Multi), 2)
			},
		},
		{
			name: "MailLeftToRelay",
			cfg:  Config{Mail: mail, Kafka: kafka, Notify: NotifyConfig{EmailViaRelay: true}},
			check: func(t *testing.T, s notify.Sender) {
				assert.IsType(t, &notify.KafkaPublisher{}, s)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closeFn := newSender(zap.NewNop(), &tt.cfg)
			defer closeFn()
			tt.check(t, s)
		})
	}
}
