package config

import (
	"strings"
	"testing"
)

func TestDefaultScoring_IsValid(t *testing.T) {
	if err := DefaultScoring().Validate(); err != nil {
		t.Fatalf("default scoring config invalid: %v", err)
	}
}

func TestScoringValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := DefaultScoring()
	cfg.RecencyWeight = 0.50
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected weight sum error")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScoringValidate_PageSizePositive(t *testing.T) {
	cfg := DefaultScoring()
	cfg.PageSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected page size error")
	}
}

func TestScoringValidate_BulkConcurrencyPositive(t *testing.T) {
	cfg := DefaultScoring()
	cfg.BulkConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected bulk concurrency error")
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, User: "crm", Password: "pw", DBName: "retention", SSLMode: "disable"}
	want := "host=localhost port=5432 user=crm password=pw dbname=retention sslmode=disable"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN = %q, want %q", got, want)
	}
}

func TestGetRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: 6379}
	if got := r.GetRedisAddr(); got != "localhost:6379" {
		t.Errorf("GetRedisAddr = %q", got)
	}
}
