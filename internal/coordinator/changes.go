package coordinator

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/store"
)

// onChange keeps runtime state in line with store mutations. It never takes
// a group lock, so a slow device call cannot block the writer.
func (c *Coordinator) onChange(ch store.Change) {
	switch ch.Kind {
	case store.ChangeRenamed:
		c.mu.Lock()
		if gs, ok := c.groups[ch.OldName]; ok {
			c.groups[ch.Group] = gs
			delete(c.groups, ch.OldName)
		}
		delete(c.pending, ch.OldName)
		c.mu.Unlock()

		c.overrides.Rename(ch.OldName, ch.Group)
		if c.history != nil {
			if err := c.history.Rename(ch.OldName, ch.Group); err != nil {
				log.Warn().Err(err).Str("group", ch.Group).Msg("Failed to move advance history")
			}
		}
		c.TriggerGroup(ch.Group)

	case store.ChangeDeleted:
		c.mu.Lock()
		delete(c.groups, ch.Group)
		delete(c.pending, ch.Group)
		c.mu.Unlock()
		c.overrides.Forget(ch.Group, c.clock.Now())

	case store.ChangeReset:
		c.mu.Lock()
		c.groups = make(map[string]*groupState)
		c.pending = make(map[string]struct{})
		c.mu.Unlock()
		c.overrides.Reset(c.clock.Now())

	case store.ChangeSettings:
		c.mu.Lock()
		for name, gs := range c.groups {
			gs.reapply.Store(true)
			c.pending[name] = struct{}{}
		}
		c.mu.Unlock()
		c.kick()

	case store.ChangeMembers:
		c.state(ch.Group).reapply.Store(true)
		c.TriggerGroup(ch.Group)

	default:
		c.TriggerGroup(ch.Group)
	}
}

func (c *Coordinator) kick() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}
