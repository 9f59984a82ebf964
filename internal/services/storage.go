package services

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogoResolver turns stored business logo keys into URLs the apps can load.
// With S3 configured the URL is presigned, otherwise it points at the local
// uploads directory served by the API.
type LogoResolver struct {
	s3      *s3.S3
	bucket  string
	ttl     time.Duration
	baseURL string
	log     *logrus.Entry
}

type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	TTL       time.Duration
}

func NewS3LogoResolver(opts S3Options, log *logrus.Entry) (*LogoResolver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(opts.Region),
		Credentials: credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}
	return &LogoResolver{s3: s3.New(sess), bucket: opts.Bucket, ttl: opts.TTL, log: log}, nil
}

func NewLocalLogoResolver(baseURL string) *LogoResolver {
	return &LogoResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *LogoResolver) UsingS3() bool { return r.s3 != nil }

// LogoURL returns "" for an empty key. Keys that are already absolute URLs are
// returned as-is.
func (r *LogoResolver) LogoURL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	if r.s3 == nil {
		return fmt.Sprintf("%s/uploads/%s", r.baseURL, path.Clean(strings.TrimLeft(key, "/")))
	}

	req, _ := r.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(r.ttl)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to presign logo URL")
		}
		return ""
	}
	return url
}
