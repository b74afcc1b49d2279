package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"90s"`, 90 * time.Second, false},
		{`"1h30m"`, 90 * time.Minute, false},
		{`1000000000`, time.Second, false},
		{`null`, 0, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
		{`"-5s"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		TTL    Duration `yaml:"ttl"`
		Window Duration `yaml:"window"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("ttl: 10m\nwindow: 2000000000\n"), &cfg))

	assert.Equal(t, 10*time.Minute, cfg.TTL.Duration)
	assert.Equal(t, 2*time.Second, cfg.Window.Duration)
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{time.Minute})
	require.NoError(t, err)
	assert.JSONEq(t, `"1m0s"`, string(b))
}
