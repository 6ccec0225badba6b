package model

// Collection documents mirror the JSON files stored on the family drive:
// one document per entity type, each wrapping a single array.

type ChoreDocument struct {
	Chores []Chore `json:"chores"`
}

type TemplateDocument struct {
	Templates []ChoreTemplate `json:"templates"`
}

type RewardDocument struct {
	Rewards []Reward `json:"rewards"`
}

type RedemptionDocument struct {
	Redemptions []RewardRedemption `json:"redemptions"`
}

type UserDocument struct {
	Users []User `json:"users"`
}

type LogDocument struct {
	Logs []ActivityLog `json:"logs"`
}

// Document file names inside the family drive folder.
const (
	ChoresFile      = "chores.json"
	TemplatesFile   = "templates.json"
	RewardsFile     = "rewards.json"
	RedemptionsFile = "redemptions.json"
	UsersFile       = "users.json"
	LogsFile        = "logs.json"
)
