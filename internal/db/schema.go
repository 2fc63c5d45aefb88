package db

import "fmt"

// schemaSQL defines the job and memory tables. The single %d is the
// embedding dimension of the memory HNSW index.
const schemaSQL = `
    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    -- The full job is kept as a JSON document in record; the other fields
    -- mirror it for listing without decoding.
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS record ON job TYPE string;

    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;
    DEFINE INDEX IF NOT EXISTS job_created ON job FIELDS created_at;

    -- ==========================================================================
    -- MEMORY TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON memory TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON memory TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_kind ON memory FIELDS kind;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS memory_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS memory_content_ft ON memory FIELDS content FULLTEXT ANALYZER memory_analyzer BM25;
`

// SchemaSQL returns the schema for the given embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaSQL, dimension)
}
