package configsync

import (
	"context"

	"github.com/flowslide/synccore/internal/clockid"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
)

// settingsRecordID is the fixed, singleton id every replica uses for its
// system_configs/ai_provider_configs record, so peers agree on identity
// without a discovery step.
const settingsRecordID = "singleton"

// Bootstrap seeds local's system_configs and ai_provider_configs records
// from the current process environment the first time this replica starts
// with no local record yet (spec §4.8: "a new replica inherits them on
// startup"). Once a record exists locally — whether written here or
// synced down from a peer — Bootstrap leaves it untouched; the normal
// full_duplex worker reconciles any subsequent drift.
func Bootstrap(ctx context.Context, local store.Adapter, getenv func(string) string, clock *clockid.Clock) error {
	settings := FromEnv(getenv)
	if settings.IsZero() {
		return nil
	}

	now := clock.NowMillis()

	if err := seedIfAbsent(ctx, local, record.SystemConfigs, systemConfigsView(settings), now); err != nil {
		return err
	}

	return seedIfAbsent(ctx, local, record.AIProviderConfigs, aiProviderConfigsView(settings), now)
}

func seedIfAbsent(ctx context.Context, local store.Adapter, t record.DataType, settings Settings, now int64) error {
	_, exists, err := local.Get(ctx, t, settingsRecordID)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	payload, err := settings.Marshal()
	if err != nil {
		return err
	}

	return local.Put(ctx, record.Record{
		Type: t, ID: settingsRecordID, Payload: payload, UpdatedAt: now, Origin: record.OriginLocal, Version: 1,
	})
}

// systemConfigsView narrows settings to the subset mirrored under
// system_configs: infrastructure and platform-level options.
func systemConfigsView(settings Settings) Settings {
	return Settings{
		DatabaseURL:         settings.DatabaseURL,
		DefaultAdminUser:    settings.DefaultAdminUser,
		DefaultAdminPass:    settings.DefaultAdminPass,
		R2AccessKeyID:       settings.R2AccessKeyID,
		R2SecretAccessKey:   settings.R2SecretAccessKey,
		R2Endpoint:          settings.R2Endpoint,
		R2Bucket:            settings.R2Bucket,
		JWTSecret:           settings.JWTSecret,
		CaptchaSiteKey:      settings.CaptchaSiteKey,
		CaptchaSecretKey:    settings.CaptchaSecretKey,
		UploadMaxSizeMB:     settings.UploadMaxSizeMB,
		LoginCaptchaEnabled: settings.LoginCaptchaEnabled,
	}
}

// aiProviderConfigsView narrows settings to the subset mirrored under
// ai_provider_configs: provider credentials and endpoints.
func aiProviderConfigsView(settings Settings) Settings {
	return Settings{
		AIProviderKeys:     settings.AIProviderKeys,
		AIProviderBaseURLs: settings.AIProviderBaseURLs,
	}
}
