package commands

import (
	"bufio"
	"context"
	"os"

	"gorsi/lib/rsi"
)

type globalsKeyType int

var globalsKey globalsKeyType

// stdin is shared by every prompt so buffered input is not lost between them.
var stdin = bufio.NewReader(os.Stdin)

type globals struct {
	Config Config
	Site   *rsi.Site
	close  func()
}

func (g *globals) Close() {
	if g.close != nil {
		g.close()
	}
}

func setGlobals(ctx context.Context, value *globals) context.Context {
	return context.WithValue(ctx, globalsKey, value)
}

func getGlobals(ctx context.Context) *globals {
	return ctx.Value(globalsKey).(*globals)
}
