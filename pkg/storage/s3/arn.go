package s3

import "strings"

// partitionFor returns the AWS partition a region belongs to.
func partitionFor(region string) string {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov"
	case strings.HasPrefix(region, "us-iso-"):
		return "aws-iso"
	case strings.HasPrefix(region, "us-isob-"):
		return "aws-iso-b"
	default:
		return "aws"
	}
}

// bucketARN builds the bucket ARN. Bucket ARNs carry neither region nor
// account, so only the partition varies.
func bucketARN(region, bucket string) string {
	return "arn:" + partitionFor(region) + ":s3:::" + bucket
}
