package domain

import "time"

// NutritionSource names the provider nutrition facts come from.
const NutritionSource = "CalorieNinjas"

// DefaultServingSizeG is used when the provider omits a serving size.
const DefaultServingSizeG = 100.0

// Nutrients holds the macro and micronutrient values of one serving.
type Nutrients struct {
	Calories      float64 `json:"calories"`
	ProteinG      float64 `json:"protein_g"`
	CarbohydrateG float64 `json:"carbohydrate_g"`
	FatG          float64 `json:"fat_g"`
	FiberG        float64 `json:"fiber_g"`
	SugarG        float64 `json:"sugar_g"`
	SodiumMg      float64 `json:"sodium_mg"`
	ServingSizeG  float64 `json:"serving_size_g"`
}

// NutritionFact is a cached lookup result for one canonical food name in one household.
type NutritionFact struct {
	ID            string `json:"id"`
	CanonicalName string `json:"canonical_name"`
	Source        string `json:"source"`
	Nutrients
	HouseholdID string    `json:"household_id"`
	UserEmail   string    `json:"user_email"`
	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}

// FailedNutritionLookup records names the provider does not know, so they are not retried blindly.
type FailedNutritionLookup struct {
	ID              string    `json:"id"`
	CanonicalName   string    `json:"canonical_name"`
	LastAttemptDate time.Time `json:"last_attempt_date"`
	AttemptCount    int       `json:"attempt_count"`
	Source          string    `json:"source"`
	HouseholdID     string    `json:"household_id"`
	UserEmail       string    `json:"user_email"`
	CreatedDate     time.Time `json:"created_date"`
	UpdatedDate     time.Time `json:"updated_date"`
}
