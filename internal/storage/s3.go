package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Encrypted payload layout: magic(8) + salt(16) + nonce(12) + ciphertext+tag.
const gcmMagic = "GCM3NCR0"

const (
	pbkdf2Iterations = 100000
	keyLen           = 32
)

// S3Client fetches exam submissions and stores graded artifacts. Payloads may
// be AES-GCM encrypted at rest; a submission without the magic header is
// treated as plaintext.
type S3Client struct {
	client     *s3.Client
	bucketName string
}

// ObjectMeta carries the metadata stored alongside a submission.
type ObjectMeta struct {
	OriginalName string
	ContentType  string
	Size         int64
	Encrypted    bool
	Metadata     map[string]string
}

// NewS3Client creates a new S3 client for the given bucket.
func NewS3Client(ctx context.Context, bucketName, region string) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if region != "" {
		opts = append(opts, awscfg.WithRegion(region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Client{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
	}, nil
}

// FetchSubmission downloads a submission and decrypts it when needed.
func (s *S3Client) FetchSubmission(ctx context.Context, key, password string) ([]byte, *ObjectMeta, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	meta := &ObjectMeta{Metadata: make(map[string]string)}
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	if name, ok := meta.Metadata["name"]; ok {
		meta.OriginalName = name
	}
	if result.ContentLength != nil {
		meta.Size = *result.ContentLength
	}
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}

	data := raw
	if len(raw) >= len(gcmMagic) && string(raw[:len(gcmMagic)]) == gcmMagic {
		if password == "" {
			return nil, nil, fmt.Errorf("submission %s is encrypted but no key is configured", key)
		}
		data, err = decryptGCM(raw, password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt submission: %w", err)
		}
		meta.Encrypted = true
	}

	log.Info().
		Str("key", key).
		Bool("encrypted", meta.Encrypted).
		Str("original_name", meta.OriginalName).
		Int("size", len(data)).
		Msg("fetched submission from S3")

	return data, meta, nil
}

// StoreArtifact uploads a graded artifact, encrypting it when a password is
// set so results get the same at-rest protection as submissions.
func (s *S3Client) StoreArtifact(ctx context.Context, key string, data []byte, password, contentType string) error {
	payload := data
	encrypted := false
	if password != "" {
		var err error
		payload, err = encryptGCM(data, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt artifact: %w", err)
		}
		encrypted = true
	}

	meta := map[string]string{"content-type": contentType}
	if encrypted {
		meta["encrypted"] = "true"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(key),
		Body:     bytes.NewReader(payload),
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().
		Str("key", key).
		Bool("encrypted", encrypted).
		Int("size", len(payload)).
		Msg("stored artifact in S3")
	return nil
}

func decryptGCM(encryptedData []byte, password string) ([]byte, error) {
	// magic(8) + salt(16) + nonce(12) + ciphertext including the 16 byte tag
	if len(encryptedData) < 8+16+12+16 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(encryptedData))
	}

	salt := encryptedData[8:24]
	nonce := encryptedData[24:36]
	ciphertext := encryptedData[36:]

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, 8+16+12+len(ciphertext))
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}
