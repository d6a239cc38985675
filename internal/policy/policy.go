// Package policy holds the XP, level and step tables that drive progression.
// Every table is data: rates can be overridden from a YAML file without code changes.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/progression/internal/domain"
)

// DefaultAchievementXP is the bonus granted for each unlocked achievement.
const DefaultAchievementXP = 250

// Policy bundles the tables consumed by the engine.
type Policy struct {
	Rewards       RewardPolicy
	Levels        LevelLedger
	Steps         StepModel
	AchievementXP int64
}

// Default returns the compiled-in tables.
func Default() Policy {
	return Policy{
		Rewards:       NewRewardPolicy(DefaultRewardRates(), RewardRate{Flat: DefaultGeneralActivityXP}),
		Levels:        MustLevelLedger(DefaultLevelThresholds()),
		Steps:         NewStepModel(DefaultStepRates()),
		AchievementXP: DefaultAchievementXP,
	}
}

// File is the YAML layout accepted by LoadFile. Omitted sections keep their defaults;
// rate maps are merged per activity category.
type File struct {
	AchievementXP *int64                `yaml:"achievement_xp"`
	GeneralReward *RewardRate           `yaml:"general_reward"`
	Levels        []int64               `yaml:"levels"`
	Rewards       map[string]RewardRate `yaml:"rewards"`
	Steps         map[string]StepRate   `yaml:"steps"`
}

// LoadFile reads path and overlays it on Default. An empty path returns Default.
func LoadFile(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML policy document and overlays it on Default.
func Parse(raw []byte) (Policy, error) {
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Policy{}, fmt.Errorf("decode policy file: %w", err)
	}

	rewards := DefaultRewardRates()
	for key, rate := range file.Rewards {
		activityType, err := activityKey(key)
		if err != nil {
			return Policy{}, fmt.Errorf("rewards: %w", err)
		}
		rewards[activityType] = rate
	}
	general := RewardRate{Flat: DefaultGeneralActivityXP}
	if file.GeneralReward != nil {
		general = *file.GeneralReward
	}

	steps := DefaultStepRates()
	for key, rate := range file.Steps {
		activityType, err := activityKey(key)
		if err != nil {
			return Policy{}, fmt.Errorf("steps: %w", err)
		}
		steps[activityType] = rate
	}

	thresholds := DefaultLevelThresholds()
	if len(file.Levels) > 0 {
		thresholds = file.Levels
	}
	levels, err := NewLevelLedger(thresholds)
	if err != nil {
		return Policy{}, fmt.Errorf("levels: %w", err)
	}

	achievementXP := int64(DefaultAchievementXP)
	if file.AchievementXP != nil {
		if *file.AchievementXP < 0 {
			return Policy{}, fmt.Errorf("achievement_xp must not be negative")
		}
		achievementXP = *file.AchievementXP
	}

	return Policy{
		Rewards:       NewRewardPolicy(rewards, general),
		Levels:        levels,
		Steps:         NewStepModel(steps),
		AchievementXP: achievementXP,
	}, nil
}

func activityKey(key string) (domain.ActivityType, error) {
	parsed := domain.ParseActivityType(key)
	if parsed == domain.ActivityOther && !strings.EqualFold(strings.TrimSpace(key), string(domain.ActivityOther)) {
		return "", fmt.Errorf("unknown activity type %q", key)
	}
	return parsed, nil
}
