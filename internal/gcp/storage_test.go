package gcp

import "testing"

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LN_TEST_DPI", " 150 ")
	t.Setenv("LN_TEST_EMPTY", "")
	t.Setenv("LN_TEST_BAD", "three hundred")

	if n, err := GetEnvInt("LN_TEST_DPI", 300); err != nil || n != 150 {
		t.Errorf("GetEnvInt(set) = %d, %v; want 150", n, err)
	}
	if n, err := GetEnvInt("LN_TEST_EMPTY", 300); err != nil || n != 300 {
		t.Errorf("GetEnvInt(empty) = %d, %v; want 300", n, err)
	}
	if n, err := GetEnvInt("LN_TEST_UNSET_VARIABLE", 7); err != nil || n != 7 {
		t.Errorf("GetEnvInt(unset) = %d, %v; want 7", n, err)
	}
	if _, err := GetEnvInt("LN_TEST_BAD", 300); err == nil {
		t.Error("expected an error for a non-numeric value")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("LN_TEST_BUCKET", "results")
	if got := GetEnv("LN_TEST_BUCKET", "fallback"); got != "results" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("LN_TEST_UNSET_BUCKET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv(unset) = %q", got)
	}
}

func TestParseObjectURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://results/doc-1/pages.json", bucket: "results", object: "doc-1/pages.json"},
		{uri: "gs://b/o", bucket: "b", object: "o"},
		{uri: "https://storage.googleapis.com/b/o", wantErr: true},
		{uri: "gs://bucket-only", wantErr: true},
		{uri: "gs:///object", wantErr: true},
		{uri: "gs://bucket/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseObjectURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %q %q", bucket, object)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseObjectURI: %v", err)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("got %q %q, want %q %q", bucket, object, tt.bucket, tt.object)
			}
			if round := ObjectURI(bucket, object); round != tt.uri {
				t.Errorf("ObjectURI = %q, want %q", round, tt.uri)
			}
		})
	}
}
