package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

var initAlgo sync.Once

// Match is one fuzzy search hit.
type Match struct {
	Name  string
	Score int
}

// Search returns entity names fuzzily matching keyword, best score first.
// Matching is case-insensitive and requires every keyword rune to appear
// in order.
func (c *Catalog) Search(keyword string) []Match {
	pattern := []rune(strings.ToLower(strings.TrimSpace(keyword)))
	if len(pattern) == 0 {
		return nil
	}
	initAlgo.Do(func() { algo.Init("default") })

	slab := util.MakeSlab(slab16Size, slab32Size)
	out := make([]Match, 0)
	for _, name := range c.EntityNames() {
		chars := util.ToChars([]byte(name))
		res, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
		if res.Start < 0 || res.Score <= 0 {
			continue
		}
		out = append(out, Match{Name: name, Score: res.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}
