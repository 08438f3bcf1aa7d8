package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a store backed by an S3 bucket, using the default AWS
// credential chain.
func NewStore(bucketName string) core.Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func objectKey(prefix, id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid id %q: %w", id, core.ErrNotFound)
	}
	return path.Join(prefix, id), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) get(ctx context.Context, key string) ([]byte, *string, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, resp.ContentType, nil
}

func (s *s3Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *s3Store) CreateSession(ctx context.Context, session *core.Session) (string, error) {
	sess := *session
	sess.ID = ulid.Make().String()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if err := s.writeSession(ctx, &sess); err != nil {
		return "", err
	}
	logrus.WithField("session_id", sess.ID).Info("Session created successfully")
	return sess.ID, nil
}

func (s *s3Store) writeSession(ctx context.Context, sess *core.Session) error {
	key, err := objectKey("sessions", sess.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("failed to upload session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *s3Store) FindSession(ctx context.Context, id string) (*core.Session, error) {
	key, err := objectKey("sessions", id)
	if err != nil {
		return nil, err
	}
	data, _, err := s.get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			logrus.WithField("session_id", id).Warn("Session with specified ID not found")
			return nil, fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *s3Store) UpdateSession(ctx context.Context, session *core.Session) error {
	if err := s.exists(ctx, "sessions", session.ID); err != nil {
		return err
	}
	if err := s.writeSession(ctx, session); err != nil {
		return err
	}
	logrus.WithField("session_id", session.ID).Info("Session updated successfully")
	return nil
}

func (s *s3Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.exists(ctx, "sessions", id); err != nil {
		return err
	}
	key, _ := objectKey("sessions", id)
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	logrus.WithField("session_id", id).Info("Session deleted successfully")
	return nil
}

// exists turns a missing object into core.ErrNotFound. S3 deletes and
// overwrites succeed on missing keys, so callers check first.
func (s *s3Store) exists(ctx context.Context, prefix, id string) error {
	key, err := objectKey(prefix, id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s with id %s: %w", path.Base(prefix), id, core.ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) SaveImage(ctx context.Context, image *core.Image) (string, error) {
	id := ulid.Make().String()
	key, _ := objectKey("images", id)
	if err := s.put(ctx, key, image.Data.Bytes(), image.ContentType); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"image_id":    id,
		"data_length": image.Data.Len(),
	}).Info("Image saved successfully")
	return id, nil
}

func (s *s3Store) FindImage(ctx context.Context, id string) (*core.Image, error) {
	key, err := objectKey("images", id)
	if err != nil {
		return nil, err
	}
	data, contentType, err := s.get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			logrus.WithField("image_id", id).Warn("Image with specified ID not found")
			return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get image %s: %w", id, err)
	}
	return &core.Image{ContentType: aws.ToString(contentType), Data: *bytes.NewBuffer(data)}, nil
}
