package bridge

import (
	"runtime"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/hostbridge/command"
)

func TestAnnouncedReadsCreateCommand(t *testing.T) {
	_, ctx := newTestContext(t)
	b, err := NewBindingObject(ctx, ctx.NextTargetID(), &stubTarget{})
	require.NoError(t, err)

	cmd := command.Command{Op: command.OpCreateEventTarget, TargetID: b.Native().ID(), Native: weak.Make(b.Native())}
	assert.Same(t, b.Native(), Announced(cmd))
	assert.Same(t, b.Native(), Announced(command.Command{Native: b.Native()}))
	assert.Nil(t, Announced(command.Command{Op: command.OpAddEvent}))
}

func TestAnnouncedDoesNotKeepShadowAlive(t *testing.T) {
	_, ctx := newTestContext(t)
	cmd := func() command.Command {
		b, err := NewBindingObject(ctx, ctx.NextTargetID(), &stubTarget{})
		require.NoError(t, err)
		return command.Command{Op: command.OpCreateEventTarget, TargetID: b.Native().ID(), Native: weak.Make(b.Native())}
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return Announced(cmd) == nil
	}, 2*time.Second, 5*time.Millisecond)
}
