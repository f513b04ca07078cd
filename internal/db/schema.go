package db

// SchemaSQL contains the job collection schema.
//
// Two indexes carry the pipeline's coordination guarantees:
//   - job_idempotency: unique on (user_id, active_fingerprint). The
//     active_fingerprint field holds the request fingerprint only while the
//     job is non-terminal (NONE afterwards, and NONE values are not
//     indexed), so at most one active job exists per fingerprint while a
//     finished one can be resubmitted.
//   - job_claim: (status, created_at) for FIFO claim scans.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS artifact_job SCHEMAFULL;

    DEFINE FIELD IF NOT EXISTS user_id ON artifact_job TYPE string;
    DEFINE FIELD IF NOT EXISTS notebook_id ON artifact_job TYPE string;
    DEFINE FIELD IF NOT EXISTS artifact_type ON artifact_job TYPE string
        ASSERT $value IN ['quiz', 'flashcards', 'mindmap'];

    DEFINE FIELD IF NOT EXISTS fingerprint ON artifact_job TYPE string;
    DEFINE FIELD IF NOT EXISTS active_fingerprint ON artifact_job TYPE option<string>;

    DEFINE FIELD IF NOT EXISTS status ON artifact_job TYPE string
        ASSERT $value IN ['pending', 'planning', 'generating', 'validating', 'completed', 'failed'];
    DEFINE FIELD IF NOT EXISTS progress ON artifact_job TYPE int DEFAULT 0;

    DEFINE FIELD IF NOT EXISTS retrieval_snapshot ON artifact_job FLEXIBLE TYPE object;
    DEFINE FIELD IF NOT EXISTS plan ON artifact_job FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS options ON artifact_job FLEXIBLE TYPE option<object>;

    DEFINE FIELD IF NOT EXISTS token_budget ON artifact_job TYPE int;
    DEFINE FIELD IF NOT EXISTS tokens_used ON artifact_job TYPE int DEFAULT 0;

    DEFINE FIELD IF NOT EXISTS worker_id ON artifact_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS retry_count ON artifact_job TYPE int DEFAULT 0;

    DEFINE FIELD IF NOT EXISTS result ON artifact_job FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS error ON artifact_job FLEXIBLE TYPE option<object>;

    DEFINE FIELD IF NOT EXISTS created_at ON artifact_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON artifact_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS started_at ON artifact_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON artifact_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_claim ON artifact_job FIELDS status, created_at;
    DEFINE INDEX IF NOT EXISTS job_idempotency ON artifact_job FIELDS user_id, active_fingerprint UNIQUE;
`
