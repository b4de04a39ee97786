// dephealth_test.go — unit-тесты для выбора health-path S3 endpoint'а.
package service

import "testing"

func TestS3HealthPath(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{
			name:     "MinIO без path — дефолтный probe живости",
			endpoint: "http://minio.storage.svc:9000",
			want:     "/minio/health/live",
		},
		{
			name:     "endpoint с явным path",
			endpoint: "https://s3.example.com/healthz",
			want:     "/healthz",
		},
		{
			name:     "endpoint с корневым path",
			endpoint: "http://minio:9000/",
			want:     "/minio/health/live",
		},
		{
			name:     "endpoint с вложенным path",
			endpoint: "https://gateway.example.com/storage/health",
			want:     "/storage/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s3HealthPath(tt.endpoint)
			if got != tt.want {
				t.Errorf("s3HealthPath(%q) = %q, ожидался %q", tt.endpoint, got, tt.want)
			}
		})
	}
}
