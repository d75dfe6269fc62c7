package schemareplicator

import (
	"reflect"
	"testing"
)

func TestBuildDumpArgsWithSchemas(t *testing.T) {
	got := buildDumpArgs("postgres://x", []string{"public", "app"})
	want := []string{
		"--schema-only", "--no-owner", "--no-privileges", "--format=custom",
		"--dbname=postgres://x", "--schema=public", "--schema=app",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDumpArgs = %v, want %v", got, want)
	}
}

func TestBuildDumpArgsNoSchemas(t *testing.T) {
	got := buildDumpArgs("postgres://x", nil)
	want := []string{"--schema-only", "--no-owner", "--no-privileges", "--format=custom", "--dbname=postgres://x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDumpArgs = %v, want %v", got, want)
	}
}
