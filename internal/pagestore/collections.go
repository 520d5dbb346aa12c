package pagestore

import (
	"sort"

	"github.com/samber/lo"
)

// Collection shapes the host has used for a chat's messages
type (
	modelsArrayer interface{ GetModelsArray() any }
	modelsGetter  interface{ GetModels() any }
	allGetter     interface{ All() any }
	modelser      interface{ Models() any }
	arrayer       interface{ ToArray() []Message }
	valuer        interface{ Values() []Message }
	forEacher     interface{ ForEach(func(Message)) }
)

// resolveMessageModels extracts the message list from a chat's collection, trying
// the accessor methods first and the collection itself last
func resolveMessageModels(collection any) []Message {
	if collection == nil {
		return nil
	}

	extractors := []func() any{
		func() any {
			if c, ok := collection.(modelsArrayer); ok {
				return c.GetModelsArray()
			}
			return nil
		},
		func() any {
			if c, ok := collection.(modelsGetter); ok {
				return c.GetModels()
			}
			return nil
		},
		func() any {
			if c, ok := collection.(allGetter); ok {
				return c.All()
			}
			return nil
		},
		func() any {
			if c, ok := collection.(modelser); ok {
				return c.Models()
			}
			return nil
		},
	}

	for _, extract := range extractors {
		if msgs := collectionToSlice(extract()); len(msgs) > 0 {
			return msgs
		}
	}
	return collectionToSlice(collection)
}

// collectionToSlice flattens one collection shape into a message slice
func collectionToSlice(candidate any) []Message {
	switch c := candidate.(type) {
	case nil:
		return nil
	case []Message:
		return c
	case []any:
		return lo.FilterMap(c, func(v any, _ int) (Message, bool) {
			m, ok := v.(Message)
			return m, ok && m != nil
		})
	case arrayer:
		return c.ToArray()
	case valuer:
		return c.Values()
	case forEacher:
		var out []Message
		c.ForEach(func(m Message) {
			if m != nil {
				out = append(out, m)
			}
		})
		return out
	case map[string]Message:
		keys := lo.Keys(c)
		sort.Strings(keys)
		return lo.FilterMap(keys, func(k string, _ int) (Message, bool) {
			m := c[k]
			return m, m != nil
		})
	}
	return nil
}
