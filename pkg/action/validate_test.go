package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddRejectsAbsolutePath(t *testing.T) {
	err := Validate(FromAdd(Add{Path: "/etc/passwd", Size: 1}))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must not be absolute")
}

func TestValidateAddRejectsTraversal(t *testing.T) {
	err := Validate(FromAdd(Add{Path: "year=2024/../../etc/passwd", Size: 1}))
	assert.Error(t, err)
}

func TestValidateAddRejectsNegativeSize(t *testing.T) {
	err := Validate(FromAdd(Add{Path: "part-1.parquet", Size: -1}))
	assert.Error(t, err)
}

func TestValidateAddAcceptsWellFormed(t *testing.T) {
	err := Validate(FromAdd(Add{Path: "year=2024/part-1.parquet", Size: 10, ModificationTime: 1}))
	assert.NoError(t, err)
}

func TestValidateAddWithColumnsCatchesInconsistentPartitionValues(t *testing.T) {
	err := ValidateAddWithColumns(Add{
		Path:            "year=2024/part-1.parquet",
		Size:            10,
		PartitionValues: map[string]string{"year": "2023"},
	}, []string{"year"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not consistent")
}

func TestValidateAddWithColumnsAcceptsConsistentPartitionValues(t *testing.T) {
	err := ValidateAddWithColumns(Add{
		Path:            "year=2024/part-1.parquet",
		Size:            10,
		PartitionValues: map[string]string{"year": "2024"},
	}, []string{"year"})
	assert.NoError(t, err)
}

func TestValidateMetaDataRequiresIDAndProvider(t *testing.T) {
	err := Validate(FromMetaData(MetaData{}))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metaData.id must not be empty")
	assert.Contains(t, err.Error(), "metaData.format.provider must not be empty")
}

func TestValidateProtocolRequiresPositiveVersions(t *testing.T) {
	err := Validate(FromProtocol(Protocol{}))
	assert.Error(t, err)
}

func TestValidateCommitInfoRequiresOperation(t *testing.T) {
	err := Validate(FromCommitInfo(CommitInfo{Timestamp: 1}))
	assert.Error(t, err)
}

func TestValidateNoPopulatedVariant(t *testing.T) {
	err := Validate(Action{})
	assert.Error(t, err)
}

func TestParseSchemaStringRequiresStructType(t *testing.T) {
	_, err := ParseSchemaString(`{"type":"map","fields":[]}`)
	assert.Error(t, err)
}

func TestParseSchemaStringRequiresFieldName(t *testing.T) {
	_, err := ParseSchemaString(`{"type":"struct","fields":[{"type":"\"string\"","nullable":true}]}`)
	assert.Error(t, err)
}

func TestParseSchemaStringValid(t *testing.T) {
	schema, err := ParseSchemaString(`{"type":"struct","fields":[{"name":"id","type":"\"integer\"","nullable":false}]}`)
	require.NoError(t, err)
	assert.Equal(t, "struct", schema.Type)
	assert.Len(t, schema.Fields, 1)
	assert.Equal(t, "id", schema.Fields[0].Name)
}
