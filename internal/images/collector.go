package images

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codemother/internal/logging"
	"codemother/internal/models"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

var categoryOrder = map[models.ImageCategory]int{
	models.ImageContent:      0,
	models.ImageIllustration: 1,
	models.ImageDiagram:      2,
	models.ImageLogo:         3,
}

// Collector runs every source for a prompt and merges the results.
type Collector struct {
	sources       []Source
	maxConcurrent int
	log           zerolog.Logger
}

func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources, maxConcurrent: 4, log: logging.Component("images")}
}

type collected struct {
	index  int
	images []models.ImageResource
}

// Collect queries every source concurrently. A failing source is logged and contributes no
// images, so Collect itself never fails. Results are grouped by category in a fixed order.
func (c *Collector) Collect(ctx context.Context, prompt string) []models.ImageResource {
	query := QueryFor(prompt)
	if query == "" || len(c.sources) == 0 {
		return nil
	}

	p := pool.NewWithResults[collected]().WithMaxGoroutines(c.maxConcurrent)
	for i, src := range c.sources {
		p.Go(func() collected {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().Interface("panic", r).Str("category", string(src.Category())).Msg("image source panicked")
				}
			}()
			imgs, err := src.Collect(ctx, query)
			if err != nil {
				c.log.Warn().Err(err).Str("category", string(src.Category())).Msg("image source failed")
				return collected{index: i}
			}
			return collected{index: i, images: imgs}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	var out []models.ImageResource
	for _, r := range results {
		out = append(out, r.images...)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return categoryOrder[out[a].Category] < categoryOrder[out[b].Category]
	})
	c.log.Info().Int("images", len(out)).Msg("image collection finished")
	return out
}

// QueryFor reduces a generation prompt to a short search query.
func QueryFor(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}

// Markdown renders images as a list the generation prompt can reference.
func Markdown(imgs []models.ImageResource) string {
	if len(imgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available images:\n")
	for _, img := range imgs {
		fmt.Fprintf(&b, "- %s (%s): %s\n", img.Description, img.Category, img.URL)
	}
	return b.String()
}
