package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeUpload struct {
	bucket, key string
	parts       map[int32][]byte
}

// fakeS3 is an in-memory s3API. Errors queued in failures are returned by
// the next calls of that operation.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]*fakeUpload
	nextID   int
	pageSize int
	failures map[string][]error
	calls    map[string]int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		uploads:  make(map[string]*fakeUpload),
		pageSize: 1000,
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *fakeS3) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeS3) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// begin records a call and pops a queued failure. Callers hold f.mu.
func (f *fakeS3) begin(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("HeadObject"); err != nil {
		return nil, err
	}
	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetObject"); err != nil {
		return nil, err
	}
	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	var start, end int64
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, apiError("InvalidRange")
	}
	end = min(end, int64(len(data))-1)
	body := append([]byte(nil), data[start:end+1]...)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateMultipartUpload"); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{bucket: aws.ToString(in.Bucket), key: aws.ToString(in.Key), parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UploadPart"); err != nil {
		return nil, err
	}
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != aws.ToInt64(in.ContentLength) {
		return nil, apiError("IncompleteBody")
	}
	up.parts[aws.ToInt32(in.PartNumber)] = data
	return &s3.UploadPartOutput{ETag: aws.String(etag(data))}, nil
}

func etag(data []byte) string {
	return fmt.Sprintf("%q", strconv.Itoa(len(data))+"-"+strconv.Itoa(int(data[0])))
}

func (f *fakeS3) ListParts(ctx context.Context, in *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListParts"); err != nil {
		return nil, err
	}
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	nums := make([]int, 0, len(up.parts))
	for n := range up.parts {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)

	marker, _ := strconv.Atoi(aws.ToString(in.PartNumberMarker))
	out := &s3.ListPartsOutput{}
	for _, n := range nums {
		if n <= marker {
			continue
		}
		if len(out.Parts) == f.pageSize {
			out.IsTruncated = aws.Bool(true)
			out.NextPartNumberMarker = aws.String(strconv.Itoa(int(*out.Parts[len(out.Parts)-1].PartNumber)))
			break
		}
		data := up.parts[int32(n)]
		out.Parts = append(out.Parts, types.Part{
			PartNumber: aws.Int32(int32(n)),
			ETag:       aws.String(etag(data)),
			Size:       aws.Int64(int64(len(data))),
		})
	}
	return out, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CompleteMultipartUpload"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var buf bytes.Buffer
	prev := int32(0)
	for _, p := range in.MultipartUpload.Parts {
		num := aws.ToInt32(p.PartNumber)
		data, ok := up.parts[num]
		if !ok || num <= prev || aws.ToString(p.ETag) != etag(data) {
			return nil, apiError("InvalidPart")
		}
		prev = num
		buf.Write(data)
	}
	f.objects[up.bucket+"/"+up.key] = buf.Bytes()
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("AbortMultipartUpload"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.UploadId)
	if _, ok := f.uploads[id]; !ok {
		return nil, apiError("NoSuchUpload")
	}
	delete(f.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) hasUpload(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.uploads[id]
	return ok
}
