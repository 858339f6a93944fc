package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS username ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON user TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS user_username ON user FIELDS username UNIQUE;

    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS trace_session_id ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_owner ON conversation FIELDS owner;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    -- seq is assigned server-side per conversation; (conversation, seq) gives
    -- the total order the context window is built from.
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant", "system"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS tool_used ON message TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS trace_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON message TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS seq ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation;
    DEFINE INDEX IF NOT EXISTS message_conversation_seq ON message FIELDS conversation, seq;
`
