package audio_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/audio/simaudio"
)

func newKeepAlive(t *testing.T, p *simaudio.Platform, apiLevel int, mutate func(*audio.KeepAliveConfig)) *audio.KeepAlive {
	t.Helper()

	cfg := audio.DefaultKeepAliveConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	k, err := audio.NewKeepAlive(p, p, p.NewTonePlayer, audio.DetectCapabilities(apiLevel), cfg)
	require.NoError(t, err)
	return k
}

func TestKeepAliveReleaseWithoutEnsure(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, nil)

	assert.NotPanics(t, k.Release)
	assert.Empty(t, p.Calls(), "Release без Ensure не должен обращаться к платформе")
	assert.Equal(t, audio.KeepAliveState{}, k.State())
}

func TestKeepAliveEnsureInCall(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, nil)

	k.Ensure(audio.InCall)
	k.Ensure(audio.InCall)

	st := k.State()
	assert.True(t, st.WakeLockHeld)
	assert.True(t, st.FocusHeld)
	assert.True(t, st.ModeSaved)
	assert.Equal(t, audio.ModeNormal, st.PreviousMode)

	snap := p.Snapshot()
	assert.Equal(t, audio.ModeInCommunication, snap.Mode)
	assert.Equal(t, 1, snap.WakeLocks)
	assert.True(t, snap.FocusHeld)

	assert.Equal(t, 1, p.CallCount("wake_lock_acquire"), "Wake lock захватывается один раз")
	assert.Equal(t, 1, p.CallCount("request_focus"), "Фокус запрашивается один раз")
	assert.Equal(t, 1, p.CallCount("get_mode"), "Прежний режим сохраняется один раз")
}

func TestKeepAliveReleaseRestoresPreviousMode(t *testing.T) {
	p := simaudio.New()
	require.NoError(t, p.SetMode(audio.ModeRingtone))
	k := newKeepAlive(t, p, 34, nil)

	k.Ensure(audio.Ringing)
	k.Ensure(audio.InCall)
	k.Release()

	snap := p.Snapshot()
	assert.Equal(t, audio.ModeRingtone, snap.Mode, "Восстанавливается режим до первого изменения")
	assert.False(t, snap.FocusHeld)
	assert.Equal(t, 0, snap.WakeLocks)
	assert.Equal(t, audio.KeepAliveState{}, k.State())
}

func TestKeepAliveLegacyFocus(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 24, nil)

	k.Ensure(audio.InCall)

	reqs := p.FocusRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Legacy)
	assert.Equal(t, audio.FocusVoiceCommunication, reqs[0].Usage)

	k.Release()
	assert.Empty(t, p.FocusRequests())
}

func TestKeepAliveFailuresAreIndependent(t *testing.T) {
	p := simaudio.New()
	p.Fail("request_focus", simaudio.ErrInjected)
	p.Fail("wake_lock_acquire", simaudio.ErrInjected)

	var failed []string
	k := newKeepAlive(t, p, 34, func(cfg *audio.KeepAliveConfig) {
		cfg.OnFailure = func(op string, err error) {
			var devErr *audio.DeviceError
			assert.ErrorAs(t, err, &devErr)
			assert.ErrorIs(t, err, simaudio.ErrInjected)
			assert.False(t, audio.IsUnsupported(err))
			failed = append(failed, op)
		}
	})

	assert.NotPanics(t, func() { k.Ensure(audio.InCall) })

	assert.Equal(t, []string{"wake_lock_acquire", "request_focus"}, failed)
	assert.Equal(t, audio.ModeInCommunication, p.Snapshot().Mode, "Сбой фокуса не мешает смене режима")
	assert.False(t, k.State().FocusHeld)

	assert.NotPanics(t, k.Release)
	assert.Equal(t, audio.ModeNormal, p.Snapshot().Mode)
}

func TestKeepAliveRingbackCadence(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, func(cfg *audio.KeepAliveConfig) {
		cfg.RingbackOn = 10 * time.Millisecond
		cfg.RingbackOff = 10 * time.Millisecond
	})

	k.Ensure(audio.Ringing)
	k.Ensure(audio.Ringing)

	assert.True(t, k.State().RingbackPlaying)
	assert.Equal(t, audio.ModeNormal, p.Snapshot().Mode)
	assert.Equal(t, 1, p.CallCount("tone_player_new"), "Повторный старт гудков ничего не делает")

	assert.Eventually(t, func() bool {
		return p.Snapshot().TonesStarted >= 3
	}, time.Second, 5*time.Millisecond)

	k.Release()
	assert.False(t, k.State().RingbackPlaying)
}

func TestKeepAliveStopSuppressesScheduledTone(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, func(cfg *audio.KeepAliveConfig) {
		cfg.RingbackOn = 20 * time.Millisecond
		cfg.RingbackOff = 5 * time.Millisecond
	})

	k.Ensure(audio.Ringing)
	require.Equal(t, 1, p.Snapshot().TonesStarted)

	k.StopRingback()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, p.Snapshot().TonesStarted, "После остановки запланированный гудок не звучит")
	assert.Equal(t, 1, p.CallCount("tone_close"))
}

func TestKeepAliveInCallStopsRingback(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, nil)

	k.Ensure(audio.Ringing)
	require.True(t, k.State().RingbackPlaying)

	k.Ensure(audio.InCall)
	assert.False(t, k.State().RingbackPlaying)
	assert.Equal(t, audio.ModeInCommunication, p.Snapshot().Mode)
}

func TestKeepAliveReleaseHooks(t *testing.T) {
	p := simaudio.New()
	k := newKeepAlive(t, p, 34, nil)

	var calls atomic.Int32
	k.OnRelease(func() {
		// Обработчик может обращаться к KeepAlive без взаимной блокировки
		_ = k.State()
		calls.Add(1)
	})

	k.Ensure(audio.InCall)
	k.Release()
	assert.Equal(t, int32(1), calls.Load())
}

func TestKeepAliveConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*audio.KeepAliveConfig)
		wantErr bool
	}{
		{"по умолчанию", func(*audio.KeepAliveConfig) {}, false},
		{"нулевой гудок", func(c *audio.KeepAliveConfig) { c.RingbackOn = 0 }, true},
		{"отрицательная пауза", func(c *audio.KeepAliveConfig) { c.RingbackOff = -time.Second }, true},
		{"пустой тег", func(c *audio.KeepAliveConfig) { c.WakeLockTag = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := audio.DefaultKeepAliveConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
