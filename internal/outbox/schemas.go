package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"example.com/progression/internal/events"
)

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "user_id": {"type": "string"},
    "achievement_id": {"type": "string"},
    "name": {"type": "string"},
    "xp_awarded": {"type": "integer"},
    "unlocked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "achievement_id", "xp_awarded", "unlocked_at"],
  "additionalProperties": false
}`

const levelChangedSchema = `{
  "type": "object",
  "title": "LevelChanged",
  "properties": {
    "user_id": {"type": "string"},
    "previous_level": {"type": "integer"},
    "level": {"type": "integer"},
    "xp_total": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "previous_level", "level", "xp_total", "occurred_at"],
  "additionalProperties": false
}`

const goalCompletedSchema = `{
  "type": "object",
  "title": "GoalCompleted",
  "properties": {
    "user_id": {"type": "string"},
    "goal_id": {"type": "string"},
    "goal_type": {"type": "string"},
    "target_value": {"type": "number"},
    "current_value": {"type": "number"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "goal_id", "goal_type", "target_value", "current_value", "completed_at"],
  "additionalProperties": false
}`

const challengeCompletedSchema = `{
  "type": "object",
  "title": "ChallengeCompleted",
  "properties": {
    "user_id": {"type": "string"},
    "instance_id": {"type": "string"},
    "challenge_id": {"type": "string"},
    "progress": {"type": "number"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "instance_id", "challenge_id", "progress", "completed_at"],
  "additionalProperties": false
}`

const rewardClaimedSchema = `{
  "type": "object",
  "title": "RewardClaimed",
  "properties": {
    "user_id": {"type": "string"},
    "instance_id": {"type": "string"},
    "challenge_id": {"type": "string"},
    "xp_reward": {"type": "integer"},
    "claimed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "instance_id", "challenge_id", "xp_reward", "claimed_at"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeAchievementUnlocked: achievementUnlockedSchema,
	events.TypeLevelChanged:        levelChangedSchema,
	events.TypeGoalCompleted:       goalCompletedSchema,
	events.TypeChallengeCompleted:  challengeCompletedSchema,
	events.TypeRewardClaimed:       rewardClaimedSchema,
}

var payloadSchemas = compileCatalog(schemaCatalog)

func compileCatalog(catalog map[string]string) map[string]*jsonschema.Schema {
	compiled := make(map[string]*jsonschema.Schema, len(catalog))
	for eventType, schema := range catalog {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://progression.schemas.local/%s.schema.json", eventType)
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			panic(fmt.Sprintf("load %s schema: %v", eventType, err))
		}
		compiled[eventType] = c.MustCompile(url)
	}
	return compiled
}

// validatePayload checks payload against the registered schema of eventType.
func validatePayload(eventType string, payload []byte) error {
	schema, ok := payloadSchemas[eventType]
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s payload rejected by schema: %w", eventType, err)
	}
	return nil
}
