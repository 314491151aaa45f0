package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"sips-gamification/cache"
	"sips-gamification/models"

	"gorm.io/gorm"
)

const (
	levelsCacheKey = "gamification:levels"
	levelsCacheTTL = 10 * time.Minute

	// Past the table each virtual level costs extrapolationBase * extrapolationGrowth^level.
	extrapolationBase   = 500.0
	extrapolationGrowth = 1.5
)

type LevelResolution struct {
	Level        int     `json:"level"`
	Title        string  `json:"title"`
	CurrentMinXP int64   `json:"current_level_xp"`
	NextLevelXP  int64   `json:"next_level_xp"`
	Progress     float64 `json:"progress"` // 0..1 towards NextLevelXP
}

// ResolveLevel returns the highest level whose MinXP <= xp. Table must be sorted by MinXP asc
// (SortLevels). Beyond the top row, virtual levels continue so NextLevelXP always exceeds xp.
func ResolveLevel(table []models.LevelDefinition, xp int64) LevelResolution {
	if xp < 0 {
		xp = 0
	}
	if len(table) == 0 {
		table = []models.LevelDefinition{{Level: 1, MinXP: 0}}
	}

	res := LevelResolution{Level: table[0].Level, Title: table[0].Title, CurrentMinXP: table[0].MinXP}
	if res.Level < 1 {
		res.Level = 1
	}
	next := int64(-1)
	for _, row := range table {
		if row.MinXP <= xp {
			if row.Level >= res.Level {
				res.Level = row.Level
				res.Title = row.Title
				res.CurrentMinXP = row.MinXP
			}
			continue
		}
		next = row.MinXP
		break
	}

	if next < 0 {
		top := table[len(table)-1]
		floor := top.MinXP
		level := res.Level
		next = addXP(floor, extrapolatedStep(level))
		// next saturates at MaxInt64, which ends the walk for very large totals.
		for xp >= next && next < math.MaxInt64 {
			level++
			floor = next
			next = addXP(floor, extrapolatedStep(level))
		}
		res.Level = level
		res.CurrentMinXP = floor
	}
	res.NextLevelXP = next

	if span := res.NextLevelXP - res.CurrentMinXP; span > 0 {
		res.Progress = float64(xp-res.CurrentMinXP) / float64(span)
	}
	return res
}

func extrapolatedStep(level int) int64 {
	step := math.Round(extrapolationBase * math.Pow(extrapolationGrowth, float64(level)))
	if step >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(step)
}

// SortLevels orders by MinXP then Level, in place.
func SortLevels(table []models.LevelDefinition) {
	sort.SliceStable(table, func(i, j int) bool {
		if table[i].MinXP == table[j].MinXP {
			return table[i].Level < table[j].Level
		}
		return table[i].MinXP < table[j].MinXP
	})
}

// LevelService serves the level table from cache, falling back to the store and then to
// the built-in defaults when the table is empty.
type LevelService struct {
	DB    *gorm.DB
	Cache cache.Cache
}

func NewLevelService(db *gorm.DB, c cache.Cache) *LevelService {
	return &LevelService{DB: db, Cache: c}
}

func (s *LevelService) Table(ctx context.Context) ([]models.LevelDefinition, error) {
	var table []models.LevelDefinition
	if s.Cache.Get(ctx, levelsCacheKey, &table) && len(table) > 0 {
		return table, nil
	}
	if err := s.DB.WithContext(ctx).Order("min_xp ASC, level ASC").Find(&table).Error; err != nil {
		return nil, storeErr("select levels", err)
	}
	if len(table) == 0 {
		table = append(table, models.DefaultLevels...)
	}
	SortLevels(table)
	s.Cache.Set(ctx, levelsCacheKey, table, levelsCacheTTL)
	return table, nil
}

func (s *LevelService) Resolve(ctx context.Context, xp int64) (LevelResolution, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return LevelResolution{}, err
	}
	return ResolveLevel(table, xp), nil
}

func (s *LevelService) Invalidate(ctx context.Context) {
	s.Cache.Del(ctx, levelsCacheKey)
}

func (r LevelResolution) String() string {
	return fmt.Sprintf("L%d (%s) %d/%d", r.Level, r.Title, r.CurrentMinXP, r.NextLevelXP)
}
