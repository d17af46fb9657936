package txcontroller

import (
	"context"
	"fmt"

	"github.com/KyberNetwork/logger"
)

// MethodData resolves a 4-byte function selector (0x-prefixed hex) to its
// decoded signature, consulting the published cache before the registry.
// Results are cached append-only in state; a selector once resolved is never
// re-fetched. Registry misses are not cached, so transient failures can be
// retried.
//
// Lookups share the pipeline lock: at most one registry request is in flight
// at a time and two concurrent lookups of the same selector cannot both hit
// the network.
func (c *TxController) MethodData(ctx context.Context, selector string) (MethodData, error) {
	if c.methods == nil {
		return MethodData{}, fmt.Errorf("no method registry configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cachedMethodData(selector); ok {
		return cached, nil
	}

	data, err := c.methods.LookupSelector(ctx, selector)
	if err != nil {
		return MethodData{}, fmt.Errorf("couldn't resolve selector %s: %w", selector, err)
	}

	c.storeMu.Lock()
	s := c.state.State()
	next := make(map[string]MethodData, len(s.MethodData)+1)
	for k, v := range s.MethodData {
		next[k] = v
	}
	next[selector] = data
	s.MethodData = next
	c.state.Replace(s)
	c.storeMu.Unlock()

	logger.WithFields(logger.Fields{
		"selector": selector,
		"method":   data.Name,
	}).Debug("MethodData: selector resolved and cached")
	return data, nil
}

func (c *TxController) cachedMethodData(selector string) (MethodData, bool) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	data, ok := c.state.State().MethodData[selector]
	return data, ok
}
