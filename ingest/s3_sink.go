// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"saasbridge/platform/connectors/base"
)

// S3PutAPI is the slice of the S3 client the sink needs.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SinkConfig configures NewS3SinkFromConfig. Empty credentials fall back
// to the default AWS chain.
type S3SinkConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Sink writes each batch as one JSON lines object.
type S3Sink struct {
	client S3PutAPI
	bucket string
	prefix string

	mu  sync.Mutex
	seq map[string]int
}

// NewS3Sink wraps an existing client.
func NewS3Sink(client S3PutAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, seq: make(map[string]int)}
}

// NewS3SinkFromConfig builds the AWS client from cfg.
func NewS3SinkFromConfig(ctx context.Context, cfg S3SinkConfig) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 sink requires a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3Sink(client, cfg.Bucket, cfg.Prefix), nil
}

// Write uploads records to <prefix>/<connector>/<run-id>/<seq>.jsonl. The
// connector comes from the first record's Source and the run id from ctx.
func (s *S3Sink) Write(ctx context.Context, records []base.Record) error {
	if len(records) == 0 {
		return nil
	}
	source := records[0].Source
	if source == "" {
		source = "unknown"
	}
	runID := RunIDFromContext(ctx)
	if runID == "" {
		runID = "adhoc"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", records[i].ID, err)
		}
	}

	key := s.nextKey(source, runID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *S3Sink) nextKey(source, runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := source + "/" + runID
	s.seq[k]++
	return path.Join(s.prefix, source, runID, fmt.Sprintf("%06d.jsonl", s.seq[k]))
}
