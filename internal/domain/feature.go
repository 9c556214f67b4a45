package domain

// FeatureDefinition is an entry of the static feature catalog.
type FeatureDefinition struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	MinimumTier SubscriptionTier `json:"minimum_tier"`
}
