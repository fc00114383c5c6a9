package daemonrun

import (
	"testing"

	"millwork/internal/articles"
	"millwork/internal/enrich"
	"millwork/internal/testsupport"
)

func TestBuildRegistryCoversAllJobTypes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	registry, err := buildRegistry(cfg, store, nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	want := map[string]bool{
		articles.JobType:              true,
		enrich.JobTypePhotoSync:       true,
		enrich.JobTypeGeocodeBackfill: true,
	}
	types := registry.Types()
	if len(types) != len(want) {
		t.Fatalf("expected %d job types, got %v", len(want), types)
	}
	for _, jobType := range types {
		if !want[jobType] {
			t.Fatalf("unexpected job type %q registered", jobType)
		}
	}
}
