package remapd

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetkvm/remapd/internal/keys"
)

func TestParseMatrixLine(t *testing.T) {
	tests := []struct {
		line    string
		want    keys.Event
		wantErr bool
	}{
		{line: "P 1 2\n", want: keys.Press(keys.At(1, 2))},
		{line: "R 1 2\r\n", want: keys.Release(keys.At(1, 2))},
		{line: "p 7 4", want: keys.Press(keys.At(7, 4))},
		{line: "X 1 2", wantErr: true},
		{line: "P 1", wantErr: true},
		{line: "P 1 2 3", wantErr: true},
		{line: "P a 2", wantErr: true},
		{line: "P 1 256", wantErr: true},
		{line: "P -1 2", wantErr: true},
		{line: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.line), func(t *testing.T) {
			got, err := parseMatrixLine(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, errMatrixLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadMatrixEventsSkipsGarbage(t *testing.T) {
	input := "P 1 2\nnoise\n\nR 1 2\nP 5 4"
	out := make(chan keys.Event, 10)
	log := zerolog.Nop()

	require.NoError(t, readMatrixEvents(context.Background(), strings.NewReader(input), out, &log))
	close(out)

	var got []keys.Event
	for ev := range out {
		got = append(got, ev)
	}
	assert.Equal(t, []keys.Event{
		keys.Press(keys.At(1, 2)),
		keys.Release(keys.At(1, 2)),
		keys.Press(keys.At(5, 4)),
	}, got)
}

func TestSerialMode(t *testing.T) {
	mode := serialMode(115200)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
}
