// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package awsclient

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/trace"
)

// S3Client pairs an SDK client with the tracer used for upload spans.
type S3Client struct {
	Client *s3.Client
	Tracer trace.Tracer
}

type s3Config struct {
	RoleARN      string
	Region       string
	applyConfigs []func(*aws.Config)
	applyS3s     []func(*s3.Options)
}

// S3Option is a functional option for GetS3.
type S3Option func(*s3Config)

// WithRole sets the IAM role to assume. Empty means use the base credentials.
func WithRole(roleARN string) S3Option {
	return func(c *s3Config) {
		c.RoleARN = roleARN
	}
}

// WithRegion overrides the region of the base configuration.
func WithRegion(region string) S3Option {
	return func(c *s3Config) {
		c.Region = region
	}
}

// WithEndpoint points the client at an S3-compatible endpoint such as MinIO.
func WithEndpoint(url string) S3Option {
	return func(c *s3Config) {
		c.applyS3s = append(c.applyS3s, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(url)
		})
	}
}

// WithPathStyle uses path-style addressing instead of virtual hosts.
func WithPathStyle() S3Option {
	return func(c *s3Config) {
		c.applyS3s = append(c.applyS3s, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
}

// WithInsecureTLS turns off certificate verification.
func WithInsecureTLS() S3Option {
	return func(c *s3Config) {
		c.applyConfigs = append(c.applyConfigs, func(cfg *aws.Config) {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			cfg.HTTPClient = &http.Client{Transport: tr}
		})
	}
}

// WithGCSInterop adjusts checksum behaviour for Google Cloud Storage's S3
// interoperability API, which rejects the SDK's default trailing checksums.
func WithGCSInterop() S3Option {
	return func(c *s3Config) {
		c.applyConfigs = append(c.applyConfigs, func(cfg *aws.Config) {
			cfg.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			cfg.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		})
	}
}

type roleKey struct {
	Region  string
	RoleARN string
}

// GetS3 returns a client for the given options. Credentials are cached per
// region and role; the client itself is cheap and built on every call.
func (m *Manager) GetS3(ctx context.Context, opts ...S3Option) (*S3Client, error) {
	sc := s3Config{
		Region: m.baseCfg.Region,
	}
	for _, o := range opts {
		o(&sc)
	}

	cfg := m.baseCfg.Copy()
	cfg.Region = sc.Region
	cfg.Credentials = m.credentials(roleKey{Region: sc.Region, RoleARN: sc.RoleARN})
	for _, fn := range sc.applyConfigs {
		fn(&cfg)
	}

	return &S3Client{Client: s3.NewFromConfig(cfg, sc.applyS3s...), Tracer: m.tracer}, nil
}

func (m *Manager) credentials(key roleKey) aws.CredentialsProvider {
	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if ok {
		return provider
	}

	m.Lock()
	defer m.Unlock()
	if provider, ok = m.providers[key]; ok {
		return provider
	}
	if key.RoleARN == "" {
		provider = m.baseCfg.Credentials
	} else {
		p := stscreds.NewAssumeRoleProvider(m.stsClient, key.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = m.sessionName
		})
		provider = aws.NewCredentialsCache(p)
	}
	m.providers[key] = provider
	return provider
}
