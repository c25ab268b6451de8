package fair

import (
	"encoding/binary"
)

type Symbol string

const (
	Cherry Symbol = "🍒"
	Lemon  Symbol = "🍋"
	Orange Symbol = "🍊"
	Star   Symbol = "⭐"
	Bell   Symbol = "🔔"
	Seven  Symbol = "7️⃣"
	Gift   Symbol = "🎁"

	// Wild substitutes for any other symbol.
	Wild = Gift
)

// SymbolWeights is ordered; the weighted pool is built in this order.
var SymbolWeights = []struct {
	Symbol Symbol
	Weight int
}{
	{Cherry, 30},
	{Lemon, 24},
	{Orange, 18},
	{Star, 12},
	{Bell, 8},
	{Seven, 5},
	{Gift, 3},
}

var symbolPool = buildPool()

func buildPool() []Symbol {
	var pool []Symbol
	for _, sw := range SymbolWeights {
		for i := 0; i < sw.Weight; i++ {
			pool = append(pool, sw.Symbol)
		}
	}
	return pool
}

// Reels draws count symbols, reel i using nonce+i.
func Reels(s Seeds, count int) []Symbol {
	out := make([]Symbol, count)
	total := uint32(len(symbolPool))
	for i := range out {
		d := nonceDigest(s.ServerSeed, s.ClientSeed, s.Nonce+int64(i))
		out[i] = symbolPool[binary.BigEndian.Uint32(d[:4])%total]
	}
	return out
}
